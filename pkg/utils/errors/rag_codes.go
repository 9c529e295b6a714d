package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// 问答流水线错误码: 20
var (
	// 请求参数错误 (类别 01)
	ErrInvalidConversation = Register(New(MakeCode(ServiceRAG, CategoryRequest, 1),
		http.StatusBadRequest, codes.InvalidArgument,
		"Conversation must be non-empty and end with a user message", "কথোপকথনের শেষ বার্তাটি ব্যবহারকারীর হতে হবে"))
	ErrInvalidLimit = Register(New(MakeCode(ServiceRAG, CategoryRequest, 2),
		http.StatusBadRequest, codes.InvalidArgument, "Retrieval limit must be positive", "সীমা ধনাত্মক হতে হবে"))
	ErrInvalidDocument = Register(New(MakeCode(ServiceRAG, CategoryRequest, 3),
		http.StatusBadRequest, codes.InvalidArgument, "Document text is required", "নথির লেখা আবশ্যক"))

	// 上游模型错误 (类别 10)
	ErrRewriteUpstream = Register(New(MakeCode(ServiceRAG, CategoryNetwork, 1),
		http.StatusBadGateway, codes.Unavailable, "Query rewriting model returned no response", "মডেল থেকে কোনো উত্তর পাওয়া যায়নি"))

	// 检索错误 (类别 10)
	ErrRetrieval = Register(New(MakeCode(ServiceRAG, CategoryNetwork, 2),
		http.StatusServiceUnavailable, codes.Unavailable, "Vector store retrieval failed", "তথ্য অনুসন্ধান ব্যর্থ হয়েছে"))

	// 内部错误 (类别 07)
	ErrIndexFailed = Register(New(MakeCode(ServiceRAG, CategoryInternal, 1),
		http.StatusInternalServerError, codes.Internal, "Document indexing failed", "নথি সংরক্ষণ ব্যর্থ হয়েছে"))
	ErrStatsUnavailable = Register(New(MakeCode(ServiceRAG, CategoryInternal, 2),
		http.StatusInternalServerError, codes.Internal, "Statistics unavailable", "পরিসংখ্যান পাওয়া যাচ্ছে না"))
)

// 反馈错误码: 21
var (
	ErrFeedbackInvalid = Register(New(MakeCode(ServiceFeedback, CategoryRequest, 1),
		http.StatusBadRequest, codes.InvalidArgument, "Feedback requires a message id and a rating of good or bad", "মতামতের জন্য বার্তা আইডি ও রেটিং প্রয়োজন"))
	ErrFeedbackStore = Register(New(MakeCode(ServiceFeedback, CategoryDatabase, 1),
		http.StatusInternalServerError, codes.Internal, "Failed to store feedback", "মতামত সংরক্ষণ ব্যর্থ হয়েছে"))
)
