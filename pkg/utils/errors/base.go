package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// OK represents a successful operation.
var OK = Register(New(0, http.StatusOK, codes.OK, "Success", "সফল"))

var (
	ErrBadRequest = Register(New(MakeCode(ServiceCommon, CategoryRequest, 0),
		http.StatusBadRequest, codes.InvalidArgument, "Bad request", "অনুরোধটি সঠিক নয়"))
	ErrInvalidParam = Register(New(MakeCode(ServiceCommon, CategoryRequest, 1),
		http.StatusBadRequest, codes.InvalidArgument, "Invalid parameter", "প্যারামিটার সঠিক নয়"))
	ErrRequestTooLarge = Register(New(MakeCode(ServiceCommon, CategoryRequest, 2),
		http.StatusRequestEntityTooLarge, codes.InvalidArgument, "Request body too large", "অনুরোধের আকার অনেক বড়"))

	ErrNotFound = Register(New(MakeCode(ServiceCommon, CategoryResource, 0),
		http.StatusNotFound, codes.NotFound, "Resource not found", "খুঁজে পাওয়া যায়নি"))

	ErrInternal = Register(New(MakeCode(ServiceCommon, CategoryInternal, 0),
		http.StatusInternalServerError, codes.Internal, "Internal server error", "অভ্যন্তরীণ ত্রুটি"))
	ErrPanic = Register(New(MakeCode(ServiceCommon, CategoryInternal, 1),
		http.StatusInternalServerError, codes.Internal, "Internal server panic", "অভ্যন্তরীণ ত্রুটি"))

	ErrServiceUnavailable = Register(New(MakeCode(ServiceCommon, CategoryNetwork, 0),
		http.StatusServiceUnavailable, codes.Unavailable, "Service unavailable", "সেবা এখন পাওয়া যাচ্ছে না"))

	ErrTimeout = Register(New(MakeCode(ServiceCommon, CategoryTimeout, 0),
		http.StatusGatewayTimeout, codes.DeadlineExceeded, "Request timeout", "অনুরোধের সময় শেষ"))
)
