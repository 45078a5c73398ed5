package main

// General API documentation for swaggo. Run `swag init -g cmd/imaged/docs.go -o docs` to regenerate.
//
// @title           imaged API
// @version         1.0
// @description     HTTP API for local diffusion image generation.
//
// @contact.name   imaged maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
