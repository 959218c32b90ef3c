package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Extension Approver API",
        "description": "Automated approval pipeline for assignment extension requests",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Submissions", "description": "Form-webhook intake"},
        {"name": "Decisions", "description": "Evaluation audit trail"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"}
                }
            }
        },
        "/submissions": {
            "post": {
                "tags": ["Submissions"],
                "summary": "Accept an extension-request submission",
                "parameters": [
                    {"name": "X-Signature", "in": "header", "type": "string", "description": "Hex HMAC-SHA256 of the request body"},
                    {"name": "silent", "in": "query", "type": "boolean", "description": "Suppress notifications and confirmation email"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmissionPayload"}}
                ],
                "responses": {
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid signature"}
                }
            }
        },
        "/decisions": {
            "get": {
                "tags": ["Decisions"],
                "summary": "List evaluation decisions",
                "parameters": [
                    {"name": "email", "in": "query", "type": "string"},
                    {"name": "outcome", "in": "query", "type": "string", "enum": ["requested_meeting", "escalated", "auto_approved"]},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/decisions/export": {
            "get": {
                "tags": ["Decisions"],
                "summary": "Export evaluation decisions",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"},
                    {"name": "email", "in": "query", "type": "string"},
                    {"name": "outcome", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Rendered file"}
                }
            }
        }
    },
    "definitions": {
        "SubmissionPayload": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "partner_email": {"type": "string"},
                "dsp": {"type": "string"},
                "timestamp": {"type": "string"},
                "requests": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/RequestPayload"}
                }
            },
            "required": ["email"]
        },
        "RequestPayload": {
            "type": "object",
            "properties": {
                "assignment_id": {"type": "string"},
                "days": {"type": "integer"}
            },
            "required": ["assignment_id", "days"]
        },
        "DecisionLog": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "student_email": {"type": "string"},
                "partner_email": {"type": "string"},
                "outcome": {"type": "string"},
                "reason": {"type": "string"},
                "warning_count": {"type": "integer"},
                "duration_ms": {"type": "integer"},
                "created_at": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
