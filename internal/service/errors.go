// Package service 包含了应用的业务逻辑层。
package service

import "errors"

// 问答流程的错误分类。除 ErrDeckAssembly 在服务内部消化外，
// 其余错误均携带原因向上传播到路由层。
var (
	// ErrValidation 表示请求在调用任何协作方之前就被拒绝。
	ErrValidation = errors.New("validation error")
	// ErrRetrieval 表示向量化或检索在重试耗尽后仍然失败。
	ErrRetrieval = errors.New("retrieval error")
	// ErrGeneration 表示答案生成失败，此时不会落库任何部分答案。
	ErrGeneration = errors.New("generation error")
	// ErrPersistence 表示存储写入失败。写入不重试，失败的消息
	// 绝不会作为已送达结果返回给调用方。
	ErrPersistence = errors.New("persistence error")
	// ErrDeckAssembly 表示幻灯片合并失败。只用于日志，不会传出服务层。
	ErrDeckAssembly = errors.New("deck assembly error")
)
