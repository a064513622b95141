// Package service is the method-dispatch surface of lunadb.
//
// A Service receives calls as (category, method, JSON params, token) and
// answers with a response object carrying returnValue plus either a payload
// or errorCode/errorText. Caller-input problems never surface as Go errors;
// they are encoded in the response with the numeric codes clients of the
// reference protocol expect.
//
// Thread-safety model:
//   - Service is NOT safe for concurrent use. Every Handle, Flush and
//     RemoveCaller must happen on one goroutine.
//   - Loop provides that goroutine: transports Submit from anywhere and
//     the loop handles requests in FIFO order.
//
// Watch notifications are queued by the store while a call runs and only
// delivered by Flush, which Call and Loop run after the call's own
// response has been produced.
package service
