package handler

import (
	"net/http"
	"rfx-assist-go/internal/model"
	"rfx-assist-go/internal/service"
	"rfx-assist-go/pkg/log"
	"rfx-assist-go/pkg/tabular"

	"github.com/gin-gonic/gin"
)

// BatchHandler 结构体定义了批量问答相关的处理器。
type BatchHandler struct {
	batchService service.BatchService
}

// NewBatchHandler 创建一个新的 BatchHandler 实例。
func NewBatchHandler(batchService service.BatchService) *BatchHandler {
	return &BatchHandler{batchService: batchService}
}

// ProcessFile 是处理批量问答文件上传的 Gin 处理函数。
// 请求为 multipart 表单：file 是问题文件，其余参数在表单字段中。
func (h *BatchHandler) ProcessFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		log.Warnf("[BatchHandler] 批量请求缺少文件: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "请求未包含文件", "data": nil})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !tabular.SupportedContentType(contentType) {
		log.Warnf("[BatchHandler] 不支持的文件类型: %s", contentType)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "不支持的文件类型", "data": nil})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Errorf("[BatchHandler] 打开上传文件失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "读取文件失败", "data": nil})
		return
	}
	defer file.Close()

	questions, err := tabular.ParseQuestions(file, contentType)
	if err != nil {
		log.Warnf("[BatchHandler] 解析问题文件失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "解析问题文件失败", "data": nil})
		return
	}

	format := c.DefaultPostForm("format", tabular.FormatCSV)
	req := service.BatchRequest{
		ConversationID: c.PostForm("conversation_id"),
		UserID:         callerID(c),
		FileName:       fileHeader.Filename,
		Questions:      questions,
		Kind:           model.RFxType(c.PostForm("rfx_type")),
		Options: model.Options{
			Length: c.PostForm("length"),
			Tone:   c.PostForm("tone"),
		},
		Format: format,
	}
	log.Infof("[BatchHandler] 收到批量请求, file: %s, %d 个问题", req.FileName, len(questions))

	result, err := h.batchService.ProcessFile(c.Request.Context(), req)
	if err != nil {
		log.Errorf("[BatchHandler] 批量问答失败, error: %v", err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success", "data": result})
}
