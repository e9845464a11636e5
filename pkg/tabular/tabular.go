// Package tabular 负责批量问答的表格文件读写：
// 解析上传的提问文件（首行为表头，第一列为问题），
// 以及生成 Question/Answer/References/Images 四列的结果表。
package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// 受支持的上传内容类型。
const (
	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// 受支持的输出格式。
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Row 是结果表中的一行：一个问题与它的单条答案及出处。
type Row struct {
	Question   string
	Answer     string
	References []string
	Images     []string
}

var header = []string{"Question", "Answer", "References", "Images"}

// SupportedContentType 判断上传文件的内容类型是否受支持。
func SupportedContentType(contentType string) bool {
	return contentType == ContentTypeCSV || contentType == ContentTypeXLSX
}

// ParseQuestions 从上传文件中读出问题列表（第一列，跳过表头与空行）。
func ParseQuestions(r io.Reader, contentType string) ([]string, error) {
	switch contentType {
	case ContentTypeCSV:
		return parseCSVQuestions(r)
	case ContentTypeXLSX:
		return parseXLSXQuestions(r)
	default:
		return nil, fmt.Errorf("不支持的文件类型: %s", contentType)
	}
}

func parseCSVQuestions(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析 CSV 失败: %w", err)
	}
	return firstColumn(records), nil
}

func parseXLSXQuestions(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("解析 XLSX 失败: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("读取 XLSX 工作表失败: %w", err)
	}
	return firstColumn(rows), nil
}

// firstColumn 取每行第一列，跳过表头行与空白值。
func firstColumn(records [][]string) []string {
	questions := make([]string, 0, len(records))
	for i, record := range records {
		if i == 0 {
			continue // 表头
		}
		if len(record) == 0 {
			continue
		}
		q := strings.TrimSpace(record[0])
		if q == "" {
			continue
		}
		questions = append(questions, q)
	}
	return questions
}

// Build 将结果行编码为指定格式的表格文件。
func Build(rows []Row, format string) ([]byte, error) {
	switch format {
	case FormatCSV:
		return buildCSV(rows)
	case FormatXLSX:
		return buildXLSX(rows)
	default:
		return nil, fmt.Errorf("不支持的输出格式: %s", format)
	}
}

func buildCSV(rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("写入 CSV 表头失败: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Question,
			row.Answer,
			strings.Join(row.References, "; "),
			strings.Join(row.Images, "; "),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("写入 CSV 行失败: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("生成 CSV 失败: %w", err)
	}
	return buf.Bytes(), nil
}

func buildXLSX(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return nil, fmt.Errorf("写入 XLSX 表头失败: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []interface{}{
			row.Question,
			row.Answer,
			strings.Join(row.References, "; "),
			strings.Join(row.Images, "; "),
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("写入 XLSX 行失败: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("生成 XLSX 失败: %w", err)
	}
	return buf.Bytes(), nil
}
