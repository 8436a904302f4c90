package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campusline Placement API",
        "description": "Campus placement portal: job postings, interview rounds, attendance sessions and application progression",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Jobs", "description": "Job posting management"},
        {"name": "Rounds", "description": "Interview round configuration"},
        {"name": "Attendance", "description": "Rotating-code attendance sessions"},
        {"name": "Applications", "description": "Application progression"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate with email and password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange refresh token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Current authenticated user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/jobs": {
            "get": {
                "tags": ["Jobs"],
                "summary": "List job postings",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Jobs"],
                "summary": "Create job posting",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateJobRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/jobs/{id}": {
            "get": {
                "tags": ["Jobs"],
                "summary": "Get job posting",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Jobs"],
                "summary": "Update job posting",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateJobRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/jobs/{id}/publish": {
            "post": {
                "tags": ["Jobs"],
                "summary": "Publish job posting",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/jobs/{id}/eligible": {
            "get": {
                "tags": ["Jobs"],
                "summary": "List eligible student ids",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/jobs/{id}/rounds": {
            "get": {
                "tags": ["Rounds"],
                "summary": "List interview rounds",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Rounds"],
                "summary": "Replace round definitions",
                "description": "Positional reconcile: existing rounds are updated in place, surplus rounds are archived, never deleted",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "array", "items": {"$ref": "#/definitions/RoundSpec"}}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/jobs/{id}/bulk-advance": {
            "post": {
                "tags": ["Applications"],
                "summary": "Advance a batch of students between rounds",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkAdvanceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/jobs/{id}/export": {
            "get": {
                "tags": ["Jobs"],
                "summary": "Export placement outcomes",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/rounds/{id}/attendance-session/start": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Start rotating-code session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StartSessionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Session already active"}
                }
            }
        },
        "/rounds/{id}/attendance-session/stop": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Stop session",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Session not active"}
                }
            }
        },
        "/rounds/{id}/attendance-session/status": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Session status",
                "description": "Reading an active session whose code has expired rotates the code",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/rounds/{id}/attendance-checkin": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Submit attendance code",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CheckinRequest"}}
                ],
                "responses": {
                    "200": {"description": "Attendance recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid code"},
                    "409": {"description": "Attendance already recorded"},
                    "410": {"description": "Code expired"}
                }
            }
        },
        "/rounds/{id}/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List students marked present",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications": {
            "get": {
                "tags": ["Applications"],
                "summary": "List applications",
                "parameters": [
                    {"name": "jobId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "roundId", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Applications"],
                "summary": "Apply to a job",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not eligible"},
                    "409": {"description": "Already applied"}
                }
            }
        },
        "/applications/{id}": {
            "get": {
                "tags": ["Applications"],
                "summary": "Get application",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/{id}/rejections": {
            "get": {
                "tags": ["Applications"],
                "summary": "Rejection history of the student",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/{id}/attendance": {
            "put": {
                "tags": ["Applications"],
                "summary": "Override round attendance",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MarkAttendanceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/applications/{id}/advance": {
            "post": {
                "tags": ["Applications"],
                "summary": "Advance into a round",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AdvanceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Application closed"}
                }
            }
        },
        "/applications/{id}/finalize": {
            "post": {
                "tags": ["Applications"],
                "summary": "Record terminal outcome",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FinalizeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Application already finalized"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "RefreshTokenRequest": {
            "type": "object",
            "required": ["refresh_token"],
            "properties": {
                "refresh_token": {"type": "string"}
            }
        },
        "CreateJobRequest": {
            "type": "object",
            "required": ["company", "role_title"],
            "properties": {
                "company": {"type": "string"},
                "role_title": {"type": "string"},
                "description": {"type": "string"},
                "ctc": {"type": "string"},
                "location": {"type": "string"},
                "eligibility": {"$ref": "#/definitions/EligibilityCriteria"}
            }
        },
        "UpdateJobRequest": {
            "type": "object",
            "properties": {
                "company": {"type": "string"},
                "role_title": {"type": "string"},
                "description": {"type": "string"},
                "ctc": {"type": "string"},
                "location": {"type": "string"},
                "eligibility": {"$ref": "#/definitions/EligibilityCriteria"}
            }
        },
        "EligibilityCriteria": {
            "type": "object",
            "properties": {
                "min_cgpa": {"type": "number"},
                "min_tenth_marks": {"type": "number"},
                "min_twelfth_marks": {"type": "number"},
                "passout_year": {"type": "integer"},
                "max_arrears": {"type": "integer"},
                "allowed_departments": {"type": "array", "items": {"type": "string"}}
            }
        },
        "RoundSpec": {
            "type": "object",
            "required": ["round_name"],
            "properties": {
                "round_name": {"type": "string"},
                "type": {"type": "string"},
                "mode": {"type": "string"},
                "scheduled_at": {"type": "string", "format": "date-time"},
                "venue": {"type": "string"},
                "instructions": {"type": "string"},
                "is_attendance_mandatory": {"type": "boolean"},
                "auto_advance_on_attendance": {"type": "boolean"}
            }
        },
        "StartSessionRequest": {
            "type": "object",
            "required": ["refreshIntervalSeconds"],
            "properties": {
                "refreshIntervalSeconds": {"type": "integer", "enum": [30, 45, 60, 90]},
                "enableOfflineCode": {"type": "boolean"}
            }
        },
        "CheckinRequest": {
            "type": "object",
            "required": ["code"],
            "properties": {
                "code": {"type": "string"}
            }
        },
        "ApplyRequest": {
            "type": "object",
            "required": ["jobId"],
            "properties": {
                "jobId": {"type": "string"}
            }
        },
        "MarkAttendanceRequest": {
            "type": "object",
            "required": ["roundId", "attended"],
            "properties": {
                "roundId": {"type": "string"},
                "attended": {"type": "boolean"}
            }
        },
        "AdvanceRequest": {
            "type": "object",
            "required": ["nextRoundId"],
            "properties": {
                "nextRoundId": {"type": "string"}
            }
        },
        "FinalizeRequest": {
            "type": "object",
            "required": ["outcome"],
            "properties": {
                "outcome": {"type": "string", "enum": ["placed", "rejected"]},
                "roundId": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "BulkAdvanceRequest": {
            "type": "object",
            "required": ["fromRoundId", "toRoundId"],
            "properties": {
                "fromRoundId": {"type": "string"},
                "toRoundId": {"type": "string"},
                "emails": {"type": "string"},
                "rollNos": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "limit": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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
