// Package biz 提供法律问答流水线的业务逻辑层。
//
// 一次问答依次经过以下组件：
//   - QueryRewriter: 识别语言，把问题改写为英文检索查询并提取条款编号
//   - Retriever: 按条款编号过滤的向量检索
//   - ContextAssembler: 按回答语言渲染条文及元数据
//   - AnswerGenerator: 流式生成回答，后端失败时输出一条内联错误
//   - RAGService: 组合以上组件，并负责缓存、会话历史和索引
package biz
