// Package businessflow contains the business logic for the application.
package businessflow

const RequestIDKey = "X-Request-ID"
