package main

// General API documentation for swaggo. Regenerate with `swag init -g cmd/ipnisd/docs.go`.
//
// @title           ipnis API
// @version         1.0
// @description     Signed RPC for loading and calling content-addressed ONNX models.
//
// @contact.name   ipnis maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
