// Package docs holds the OpenAPI description of the HTTP surface, in the
// layout produced by swag init.
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
                "tags": ["Health"],
                "summary": "Service status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ServiceStatus"}}
                }
            }
        },
        "/handle_task": {
            "post": {
                "description": "Round 1 creates and publishes the project; round 2 updates it.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tasks"],
                "summary": "Run a task round",
                "parameters": [
                    {
                        "description": "task submission",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/models.TaskRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.TaskResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.TaskErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.TaskErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.TaskErrorResponse"}}
                }
            }
        },
        "/api/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/api/projects/links": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Projects"],
                "summary": "Project links",
                "parameters": [
                    {"type": "string", "description": "project name", "name": "name", "in": "query"},
                    {"type": "string", "description": "task id", "name": "task", "in": "query"},
                    {"type": "string", "description": "nonce", "name": "nonce", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.APIResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        },
        "/api/projects/qrcode": {
            "get": {
                "produces": ["image/png"],
                "tags": ["Projects"],
                "summary": "Project QR code",
                "parameters": [
                    {"type": "string", "description": "project name", "name": "name", "in": "query"},
                    {"type": "integer", "description": "edge length in pixels", "name": "size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.APIResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.APIResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {},
                "error": {"$ref": "#/definitions/models.ErrorResponse"}
            }
        },
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "message": {"type": "string"},
                "code": {"type": "integer"},
                "timestamp": {"type": "string"}
            }
        },
        "models.Attachment": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "url": {"type": "string"}
            }
        },
        "models.ResultRecord": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "task": {"type": "string"},
                "round": {"type": "integer"},
                "nonce": {"type": "string"},
                "repo_url": {"type": "string"},
                "commit_sha": {"type": "string"},
                "pages_url": {"type": "string"}
            }
        },
        "models.ServiceStatus": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "service": {"type": "string"}
            }
        },
        "models.TaskErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "kind": {"type": "string"},
                "fields": {"type": "array", "items": {"type": "string"}}
            }
        },
        "models.TaskRequest": {
            "type": "object",
            "properties": {
                "secret": {"type": "string"},
                "email": {"type": "string"},
                "task": {"type": "string"},
                "round": {"type": "integer"},
                "nonce": {"type": "string"},
                "brief": {"type": "string"},
                "checks": {"type": "array", "items": {"type": "string"}},
                "attachments": {"type": "array", "items": {"$ref": "#/definitions/models.Attachment"}},
                "evaluation_url": {"type": "string"}
            }
        },
        "models.TaskResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "result": {"$ref": "#/definitions/models.ResultRecord"}
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
	Title:            "Task Deployment API",
	Description:      "Generates single-page apps from task briefs and publishes them.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
