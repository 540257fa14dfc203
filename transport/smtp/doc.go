// Package smtp delivers spooled messages to an SMTP relay.
//
// One connection is kept open between Start and Stop. Recipients the relay
// rejects at RCPT time are reported as failed recipients rather than as an error,
// so the rest of the message is still delivered and the record is not retried.
package smtp
