// Package docs registers the OpenAPI document served under /swagger.
// Regenerate with: swag init -g cmd/supportline/main.go -d ./,./internal/transport/http
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["meta"],
                "summary": "Welcome message",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/http.welcomeResponse"}
                    }
                }
            }
        },
        "/support": {
            "post": {
                "description": "Answers a typed question, optionally with a screenshot, using the knowledge base.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["support"],
                "summary": "Support from a text question",
                "parameters": [
                    {"type": "string", "description": "User question", "name": "text_query", "in": "formData", "required": true},
                    {"type": "file", "description": "Optional screenshot", "name": "image", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "Answer and audio URL", "schema": {"$ref": "#/definitions/message.SupportResponse"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/http.errorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        },
        "/support/audio": {
            "post": {
                "description": "Transcribes a recorded question and answers it, optionally using a screenshot.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["support"],
                "summary": "Support from a recorded question",
                "parameters": [
                    {"type": "file", "description": "Recorded question", "name": "audio", "in": "formData", "required": true},
                    {"type": "file", "description": "Optional screenshot", "name": "image", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "Answer and audio URL", "schema": {"$ref": "#/definitions/message.SupportResponse"}},
                    "400": {"description": "Empty transcription or invalid request", "schema": {"$ref": "#/definitions/http.errorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "http.errorResponse": {
            "type": "object",
            "properties": {"detail": {"type": "string"}}
        },
        "http.welcomeResponse": {
            "type": "object",
            "properties": {"message": {"type": "string"}}
        },
        "message.SupportResponse": {
            "type": "object",
            "properties": {
                "audio_url": {"type": "string"},
                "text_response": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Etau Inc. Intelligent Support API",
	Description:      "Multimodal technical support: text or voice questions, optional screenshots, spoken answers.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
