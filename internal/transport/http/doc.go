// Package http implements the console's REST handlers. Handlers are thin:
// they parse the request, call one store operation and render the store's
// snapshot, so the UI always receives the state it would also get over the
// websocket.
//
// # Routes
//
// Each handler exposes Routes() for mounting under /api:
//
//	/operations      kind catalog
//	/configurations  configuration builder (edit, validate, submit, reset, export)
//	/dataset         dataset source and its columns
//	/distributions   distribution status machine
//	/history         distribution history and its export
//
// Health endpoints are plain handler funcs mounted by the app.
//
// # Error Handling
//
// Every error goes through errors.ErrorHandler and is answered with RFC 7807
// Problem Details:
//
//	{
//	    "type": "/errors/validation",
//	    "title": "Validation Failed",
//	    "status": 422,
//	    "detail": "The configuration set does not satisfy its field constraints",
//	    "instance": "/api/configurations/validate",
//	    "errors": [{"field": "configurations[0].column", "message": "is required"}]
//	}
//
// # Testing
//
// Handlers are tested with httptest against testify mocks of the store
// interfaces in interfaces.go.
package http
