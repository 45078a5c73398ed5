// Package docs holds the OpenAPI description served at /swagger when the
// server is built with -tags=swagger. Regenerate with `swag init -g cmd/imaged/docs.go -o docs`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "imaged maintainers"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/models": {
            "get": {
                "produces": ["application/json"],
                "tags": ["api"],
                "summary": "List models in the models directory",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/loras": {
            "get": {
                "produces": ["application/json"],
                "tags": ["api"],
                "summary": "List LoRA adapters",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.LoRAsResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/generate": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["image/png", "application/json"],
                "tags": ["api"],
                "summary": "Generate an image",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.GenerateRequest"}}
                ],
                "responses": {
                    "200": {
                        "description": "PNG image",
                        "headers": {
                            "X-Seed": {"type": "integer"},
                            "X-Model-Family": {"type": "string"},
                            "X-Generation-ID": {"type": "string"}
                        }
                    },
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/shutdown": {
            "post": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Shut the server down gracefully",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.MessageResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Handler status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 400},
                "detail": {"type": "string", "example": "prompt is required"}
            }
        },
        "types.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "shutting down"}
            }
        },
        "types.ModelsResponse": {
            "type": "object",
            "properties": {
                "models": {"type": "array", "items": {"type": "string"}}
            }
        },
        "types.LoRAsResponse": {
            "type": "object",
            "properties": {
                "loras": {"type": "array", "items": {"type": "string"}}
            }
        },
        "types.GenerateRequest": {
            "type": "object",
            "properties": {
                "model_name": {"type": "string", "example": "Disty0/Z-Image-Turbo-SDNQ-int8"},
                "lora_name": {"type": "string", "example": "None"},
                "lora_scale": {"type": "number", "example": 0.7},
                "prompt": {"type": "string"},
                "negative_prompt": {"type": "string"},
                "steps": {"type": "integer", "example": 8},
                "guidance_scale": {"type": "number", "example": 0},
                "width": {"type": "integer", "example": 1024},
                "height": {"type": "integer", "example": 1024},
                "seed": {"type": "integer", "example": -1}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "example": "ready"},
                "model": {"type": "string"},
                "family": {"type": "string", "example": "sd"},
                "lora": {"type": "string"},
                "backend_started": {"type": "boolean"},
                "queue_len": {"type": "integer"},
                "inflight": {"type": "integer"},
                "max_queue_depth": {"type": "integer", "example": 8},
                "loads_total": {"type": "integer"},
                "generations_total": {"type": "integer"},
                "last_error": {"type": "string"},
                "uptime_seconds": {"type": "integer"},
                "server_time_unix": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "imaged API",
	Description:      "HTTP API for local diffusion image generation.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
