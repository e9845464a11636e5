package service

import (
	"fmt"
	"rfx-assist-go/internal/model"
	"rfx-assist-go/pkg/llm"
	"strings"
)

// PromptComposer 根据证据、任务类型与生成选项构建 system 消息。
// 证据为空时退化为无依据回答的 fallback 提示；strict 控制
// fallback 模式下是否禁止编造引用（交互式查询为 true，批处理为 false）。
type PromptComposer struct {
	DefaultLength string
	DefaultTone   string
}

// kindLabel 将任务类型转换为提示词中的措辞。
func kindLabel(kind model.RFxType) string {
	if kind == model.RFxComment {
		return "a review comment on an RFx requirement"
	}
	return "a proposal response to an RFx requirement"
}

// normalize 用配置缺省值补全未指定的生成选项。
func (p PromptComposer) normalize(opts model.Options) model.Options {
	if opts.Length == "" {
		opts.Length = p.DefaultLength
	}
	if opts.Tone == "" {
		opts.Tone = p.DefaultTone
	}
	return opts
}

// Compose 构建单轮问答的 system 消息。
func (p PromptComposer) Compose(evidenceTexts []string, kind model.RFxType, opts model.Options, strict bool) llm.Message {
	if len(evidenceTexts) == 0 {
		return p.fallback(kind, opts, strict)
	}
	return p.grounded(strings.Join(evidenceTexts, "\n"), kind, opts)
}

// ComposeRefine 构建追问轮次的 system 消息。追问总是假定存在
// 至少部分可依据的上下文，不走 fallback 分支。
func (p PromptComposer) ComposeRefine(evidenceTexts []string, kind model.RFxType, opts model.Options) llm.Message {
	opts = p.normalize(opts)
	var sb strings.Builder
	sb.WriteString("You are refining a previous answer for ")
	sb.WriteString(kindLabel(kind))
	sb.WriteString(". Revise the answer according to the user's follow-up request, ")
	sb.WriteString("staying consistent with the reference material below.\n")
	fmt.Fprintf(&sb, "Keep the answer %s in length and %s in tone.\n", opts.Length, opts.Tone)
	sb.WriteString("Reference material:\n")
	sb.WriteString(strings.Join(evidenceTexts, " "))
	return llm.Message{Role: "system", Content: sb.String()}
}

// grounded 构建有证据依据的提示。
func (p PromptComposer) grounded(joined string, kind model.RFxType, opts model.Options) llm.Message {
	opts = p.normalize(opts)
	var sb strings.Builder
	sb.WriteString("You are writing ")
	sb.WriteString(kindLabel(kind))
	sb.WriteString(". Base your answer strictly on the reference material below; ")
	sb.WriteString("do not introduce facts that are not supported by it.\n")
	fmt.Fprintf(&sb, "Keep the answer %s in length and %s in tone.\n", opts.Length, opts.Tone)
	sb.WriteString("Reference material:\n")
	sb.WriteString(joined)
	return llm.Message{Role: "system", Content: sb.String()}
}

// fallback 构建无证据时的提示。
func (p PromptComposer) fallback(kind model.RFxType, opts model.Options, strict bool) llm.Message {
	opts = p.normalize(opts)
	var sb strings.Builder
	sb.WriteString("You are writing ")
	sb.WriteString(kindLabel(kind))
	sb.WriteString(". No reference material is available for this question; ")
	sb.WriteString("answer from general knowledge.\n")
	fmt.Fprintf(&sb, "Keep the answer %s in length and %s in tone.\n", opts.Length, opts.Tone)
	if strict {
		sb.WriteString("Do not fabricate citations, sources or document references.\n")
	}
	return llm.Message{Role: "system", Content: sb.String()}
}
