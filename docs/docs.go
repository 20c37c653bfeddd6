// Package docs holds the OpenAPI description served under /swagger/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Returns OK if the service is running",
                "produces": ["text/plain"],
                "tags": ["health"],
                "summary": "Health check endpoint",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}}
                }
            }
        },
        "/v1/external/login": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Opens a provider session. The identifier is tried as a username, then as an e-mail address. With remember=true the credentials are stored encrypted for later syncs.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["external"],
                "summary": "Log in to the character provider",
                "parameters": [
                    {"description": "Provider credentials", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.LoginResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/v1/external/characters": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Lists the character and campaign records of the session's account. Unreadable records are reported under skipped.",
                "produces": ["application/json"],
                "tags": ["external"],
                "summary": "List provider characters",
                "parameters": [
                    {"type": "string", "description": "Provider session token", "name": "X-External-Session", "in": "header", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.CharacterListing"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/v1/external/characters/{external_id}/import": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Imports one record into the caller's account, or updates the record previously imported from it.",
                "produces": ["application/json"],
                "tags": ["external"],
                "summary": "Import a provider character",
                "parameters": [
                    {"type": "string", "description": "Record key, e.g. character3", "name": "external_id", "in": "path", "required": true},
                    {"type": "string", "description": "Provider session token", "name": "X-External-Session", "in": "header", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Character"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/v1/characters/{id}/sync": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Pulls the latest version of an imported character. An expired provider session is refreshed once with the stored credentials.",
                "produces": ["application/json"],
                "tags": ["characters"],
                "summary": "Sync an imported character",
                "parameters": [
                    {"type": "string", "description": "Local character id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Character"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/v1/share/import": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Reads a publicly shared record through an anonymous provider session and returns it with its normalized sheet. Nothing is stored.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["share"],
                "summary": "Read a shared character",
                "parameters": [
                    {"description": "Share key", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.ShareImportRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.SharePreview"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.LoginRequest": {
            "type": "object",
            "properties": {
                "identifier": {"type": "string"},
                "password": {"type": "string"},
                "remember": {"type": "boolean"}
            }
        },
        "models.LoginResponse": {
            "type": "object",
            "properties": {
                "external_account_id": {"type": "string"},
                "session_token": {"type": "string"},
                "remembered": {"type": "boolean"}
            }
        },
        "models.ShareImportRequest": {
            "type": "object",
            "properties": {
                "share_key": {"type": "string"}
            }
        },
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "error_description": {"type": "string"}
            }
        },
        "models.CharacterSummary": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "last_modified": {"type": "string"},
                "is_campaign": {"type": "boolean"}
            }
        },
        "models.SkippedRecord": {
            "type": "object",
            "properties": {
                "key": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "models.CharacterListing": {
            "type": "object",
            "properties": {
                "characters": {"type": "array", "items": {"$ref": "#/definitions/models.CharacterSummary"}},
                "skipped": {"type": "array", "items": {"$ref": "#/definitions/models.SkippedRecord"}}
            }
        },
        "models.Character": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "name": {"type": "string"},
                "is_external": {"type": "boolean"},
                "external_id": {"type": "string"},
                "last_synced_at": {"type": "string"},
                "raw_data": {"type": "object"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "models.DecodedCharacter": {
            "type": "object",
            "properties": {
                "character_id": {"type": "string"},
                "character_name": {"type": "string"},
                "data": {"type": "object"},
                "last_modified": {"type": "string"},
                "is_campaign": {"type": "boolean"}
            }
        },
        "models.SharePreview": {
            "type": "object",
            "properties": {
                "character": {"$ref": "#/definitions/models.DecodedCharacter"},
                "sheet": {"type": "object"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Character Sync API",
	Description:      "Imports and syncs characters from an external character-builder provider.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
