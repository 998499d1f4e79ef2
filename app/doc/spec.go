package doc

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
        "/markets": {
            "get": {"tags": ["settlement"], "summary": "List markets", "responses": {"200": {"description": "OK"}}},
            "post": {"security": [{"BearerAuth": []}], "tags": ["settlement"], "summary": "Open a market", "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}}
        },
        "/markets/{id}": {
            "get": {"tags": ["settlement"], "summary": "Get market details", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/markets/{id}/odds": {
            "get": {"tags": ["settlement"], "summary": "Get stake distribution", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "OK"}}}
        },
        "/markets/{id}/pool": {
            "get": {"tags": ["settlement"], "summary": "Get pool value", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "OK"}}}
        },
        "/markets/{id}/status": {
            "get": {"tags": ["settlement"], "summary": "Get resolution status", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "OK"}}}
        },
        "/markets/{id}/events": {
            "get": {"tags": ["settlement"], "summary": "Get settlement history", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "OK"}}}
        },
        "/markets/{id}/participants/{identity}": {
            "get": {"tags": ["settlement"], "summary": "Check participation", "parameters": [{"$ref": "#/parameters/id"}, {"name": "identity", "in": "path", "required": true, "type": "string"}], "responses": {"200": {"description": "OK"}}}
        },
        "/markets/{id}/stakes": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["settlement"], "summary": "Stake on an outcome", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"201": {"description": "Created"}, "409": {"description": "Conflict"}}}
        },
        "/markets/{id}/resolve": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["settlement"], "summary": "Resolve a market", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}}
        },
        "/markets/{id}/claims": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["settlement"], "summary": "Redeem a claim token", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "OK"}, "422": {"description": "Unprocessable Entity"}}}
        },
        "/claim-tokens": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["settlement"], "summary": "List my claim tokens", "responses": {"200": {"description": "OK"}}}
        },
        "/claim-tokens/{id}": {
            "get": {"tags": ["settlement"], "summary": "Get claim token", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/claim-tokens/{id}/quote": {
            "get": {"tags": ["settlement"], "summary": "Quote the reward of a claim token", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "OK"}}}
        },
        "/claim-tokens/{id}/transfer": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["settlement"], "summary": "Transfer a claim token", "parameters": [{"$ref": "#/parameters/id"}], "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden"}}}
        }
    },
    "parameters": {
        "id": {"name": "id", "in": "path", "required": true, "type": "string", "format": "uuid"}
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Parimutuel Settlement API",
	Description:      "Two-outcome parimutuel markets: stake, resolve and claim.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
