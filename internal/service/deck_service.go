package service

import (
	"context"
	"rfx-assist-go/internal/model"
	"rfx-assist-go/pkg/deck"
	"rfx-assist-go/pkg/log"
)

// DeckCoordinator 收集多问题流程中各答案引用的幻灯片，
// 交给外部合并服务生成一份合并后的演示文稿。
// 合并失败降级为空地址，绝不影响已生成的答案。
type DeckCoordinator struct {
	deckClient deck.Client
}

// NewDeckCoordinator 创建一个新的 DeckCoordinator 实例。
func NewDeckCoordinator(deckClient deck.Client) *DeckCoordinator {
	return &DeckCoordinator{deckClient: deckClient}
}

// CollectSlides 从证据组中提取幻灯片地址，按首次出现顺序去重。
func CollectSlides(evidenceGroups [][]model.Evidence) []string {
	seen := make(map[string]struct{})
	slides := make([]string, 0)
	for _, group := range evidenceGroups {
		for _, e := range group {
			slide := e.Payload.Slide
			if slide == "" {
				continue
			}
			if _, ok := seen[slide]; ok {
				continue
			}
			seen[slide] = struct{}{}
			slides = append(slides, slide)
		}
	}
	return slides
}

// Assemble 合并幻灯片并返回成品地址。没有幻灯片或合并失败时返回空字符串。
func (d *DeckCoordinator) Assemble(ctx context.Context, slideURLs []string) string {
	if len(slideURLs) == 0 {
		return ""
	}
	deckURL, err := d.deckClient.MergeSlides(ctx, slideURLs)
	if err != nil {
		log.Errorf("%v: %v", ErrDeckAssembly, err)
		return ""
	}
	return deckURL
}
