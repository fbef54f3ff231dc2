package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Exam Timetabling API",
        "description": "Hybrid solver and genetic refinement for exam timetables, with manual incremental edits.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Timetabling", "description": "Optimization jobs, published versions and manual edits"},
        {"name": "Observability", "description": "Health and metrics"}
    ],
    "paths": {
        "/timetable/jobs": {
            "post": {
                "tags": ["Timetabling"],
                "summary": "Start a timetable optimization job",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/StartJobRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Session already has an active job", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/jobs/{id}": {
            "get": {
                "tags": ["Timetabling"],
                "summary": "Get job status",
                "produces": ["application/json"],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/jobs/{id}/cancel": {
            "post": {
                "tags": ["Timetabling"],
                "summary": "Request cancellation of a job",
                "produces": ["application/json"],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Job already finished", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/jobs/{id}/events": {
            "get": {
                "tags": ["Timetabling"],
                "summary": "Stream job progress as server-sent events",
                "produces": ["text/event-stream"],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "progress and heartbeat events", "schema": {"$ref": "#/definitions/ProgressEvent"}}
                }
            }
        },
        "/timetable/jobs/{id}/versions": {
            "get": {
                "tags": ["Timetabling"],
                "summary": "List timetable versions of a job, newest first",
                "produces": ["application/json"],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/sessions/{sessionId}/jobs": {
            "get": {
                "tags": ["Timetabling"],
                "summary": "List jobs of a session, newest first",
                "produces": ["application/json"],
                "parameters": [{"in": "path", "name": "sessionId", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/sessions/{sessionId}/invalidate": {
            "post": {
                "tags": ["Timetabling"],
                "summary": "Drop the cached problem of a session",
                "produces": ["application/json"],
                "parameters": [{"in": "path", "name": "sessionId", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/versions/{id}": {
            "get": {
                "tags": ["Timetabling"],
                "summary": "Get a timetable version with its assignments",
                "produces": ["application/json"],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/versions/{id}/edits": {
            "post": {
                "tags": ["Timetabling"],
                "summary": "Apply a manual edit to the active version",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/ManualEditRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Edit failed validation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Conflicts could not be resolved; meta lists conflicts and suggestions", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/configurations": {
            "get": {
                "tags": ["Timetabling"],
                "summary": "List stored constraint configurations",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetable/configurations/{id}": {
            "get": {
                "tags": ["Timetabling"],
                "summary": "Get a constraint configuration with its resolved rules",
                "produces": ["application/json"],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Timetabling"],
                "summary": "Create or replace a constraint configuration",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/SaveConfigurationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Profile does not parse or resolve", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Aggregated job, solver and edit counters",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "StartJobRequest": {
            "type": "object",
            "required": ["session_id"],
            "properties": {
                "session_id": {"type": "string"},
                "configuration_id": {"type": "string"}
            }
        },
        "ManualEditRequest": {
            "type": "object",
            "required": ["kind", "exam_id"],
            "properties": {
                "kind": {"type": "string", "enum": ["time", "room", "staff", "combined"]},
                "exam_id": {"type": "string"},
                "slot_id": {"type": "string"},
                "room_ids": {"type": "array", "items": {"type": "string"}},
                "room_seats": {"type": "object", "additionalProperties": {"type": "integer"}},
                "staff_ids": {"type": "array", "items": {"type": "string"}},
                "reason": {"type": "string"}
            }
        },
        "SaveConfigurationRequest": {
            "type": "object",
            "required": ["name", "profile"],
            "properties": {
                "name": {"type": "string"},
                "description": {"type": "string"},
                "profile": {"type": "string", "description": "YAML constraint profile"}
            }
        },
        "ProgressEvent": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "job_id": {"type": "string"},
                "status": {"type": "string", "enum": ["queued", "running", "completed", "failed", "cancelled"]},
                "phase": {"type": "string"},
                "progress": {"type": "integer"},
                "message": {"type": "string"},
                "objective": {"type": "number"},
                "solutions": {"type": "integer"},
                "at": {"type": "string", "format": "date-time"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
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
