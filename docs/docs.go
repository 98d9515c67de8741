package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "paths": {
        "/events": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "List events",
                "description": "Stored events, or the expanded calendar view when start and end are given",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Window start (YYYY-MM-DD)", "name": "start", "in": "query"},
                    {"type": "string", "description": "Window end (YYYY-MM-DD)", "name": "end", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/EventsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Create an event",
                "description": "A recurring event is stored as one record per occurrence, sharing a repeat group id",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Event data", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EventRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/EventsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/events/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Get event by ID",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Event ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Event"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Update an event",
                "description": "Editing one occurrence of a repeat group detaches it from the group",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Event ID", "name": "id", "in": "path", "required": true},
                    {"description": "Event data", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EventRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/EventsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Delete an event",
                "description": "Deleting one occurrence leaves the rest of its repeat group intact",
                "parameters": [
                    {"type": "string", "description": "Event ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/events-list": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Store events as given",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Events", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BatchEventsRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/EventsResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Overwrite events as given",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Events", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BatchEventsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/EventsResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["events"],
                "summary": "Delete events by id",
                "consumes": ["application/json"],
                "parameters": [
                    {"description": "Event ids", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BatchDeleteRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/repeat-groups/{groupId}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["repeat-groups"],
                "summary": "List the occurrences of a repeat group",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Repeat group ID", "name": "groupId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/EventsResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["repeat-groups"],
                "summary": "Edit every occurrence of a repeat group",
                "description": "Regenerates the group from the new rule; detached occurrences are untouched",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Repeat group ID", "name": "groupId", "in": "path", "required": true},
                    {"description": "Event data", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EventRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/EventsResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["repeat-groups"],
                "summary": "Delete every occurrence of a repeat group",
                "parameters": [
                    {"type": "string", "description": "Repeat group ID", "name": "groupId", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/expand": {
            "post": {
                "tags": ["engine"],
                "summary": "Expand recurring events into a window",
                "description": "Occurrences get ids of the form <baseId>-<YYYY-MM-DD>; non-recurring events inside the window pass through",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Events and window", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExpandRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/EventsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/repeat-dates": {
            "post": {
                "tags": ["engine"],
                "summary": "Occurrence dates of a recurring event",
                "description": "Dates after the base date up to the end date; empty when the event is not expandable",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"description": "Event", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RepeatDatesRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/RepeatDatesResponse"}}
                }
            }
        },
        "/calendar.ics": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["calendar"],
                "summary": "Export events as iCalendar",
                "produces": ["text/calendar"],
                "parameters": [
                    {"type": "string", "description": "Window start (YYYY-MM-DD)", "name": "start", "in": "query"},
                    {"type": "string", "description": "Window end (YYYY-MM-DD)", "name": "end", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "VCALENDAR", "schema": {"type": "string"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["calendar"],
                "summary": "Import an iCalendar file",
                "description": "Each VEVENT is created like a new event; unsupported entries are reported as skipped",
                "consumes": ["text/calendar"],
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ImportReport"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "RecurrenceRule": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["none", "daily", "weekly", "monthly", "yearly"]},
                "interval": {"type": "integer", "minimum": 1},
                "endDate": {"type": "string", "example": "2025-12-31"},
                "id": {"type": "string", "description": "Repeat group id, set by the server"}
            }
        },
        "Event": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "date": {"type": "string", "example": "2025-01-31"},
                "startTime": {"type": "string", "example": "09:00"},
                "endTime": {"type": "string", "example": "10:00"},
                "description": {"type": "string"},
                "location": {"type": "string"},
                "category": {"type": "string"},
                "repeat": {"$ref": "#/definitions/RecurrenceRule"},
                "notificationTime": {"type": "integer", "description": "Minutes before start"}
            }
        },
        "EventRequest": {
            "type": "object",
            "required": ["title", "date"],
            "properties": {
                "title": {"type": "string", "maxLength": 200},
                "date": {"type": "string", "example": "2025-01-31"},
                "startTime": {"type": "string", "example": "09:00"},
                "endTime": {"type": "string", "example": "10:00"},
                "description": {"type": "string", "maxLength": 2000},
                "location": {"type": "string", "maxLength": 200},
                "category": {"type": "string", "maxLength": 100},
                "repeat": {"$ref": "#/definitions/RecurrenceRule"},
                "notificationTime": {"type": "integer", "minimum": 0, "maximum": 10080}
            }
        },
        "EventsResponse": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"$ref": "#/definitions/Event"}}
            }
        },
        "BatchEventsRequest": {
            "type": "object",
            "required": ["events"],
            "properties": {
                "events": {"type": "array", "items": {"$ref": "#/definitions/Event"}}
            }
        },
        "BatchDeleteRequest": {
            "type": "object",
            "required": ["eventIds"],
            "properties": {
                "eventIds": {"type": "array", "items": {"type": "string"}}
            }
        },
        "ExpandRequest": {
            "type": "object",
            "properties": {
                "events": {"type": "array", "items": {"$ref": "#/definitions/Event"}},
                "rangeStart": {"type": "string", "example": "2025-01-01"},
                "rangeEnd": {"type": "string", "example": "2025-01-31"}
            }
        },
        "RepeatDatesRequest": {
            "type": "object",
            "properties": {
                "event": {"$ref": "#/definitions/Event"}
            }
        },
        "RepeatDatesResponse": {
            "type": "object",
            "properties": {
                "dates": {"type": "array", "items": {"type": "string"}}
            }
        },
        "ImportSkip": {
            "type": "object",
            "properties": {
                "uid": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "ImportReport": {
            "type": "object",
            "properties": {
                "imported": {"type": "array", "items": {"$ref": "#/definitions/Event"}},
                "skipped": {"type": "array", "items": {"$ref": "#/definitions/ImportSkip"}}
            }
        },
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "details": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Type 'Bearer' followed by a space and JWT token"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api",
	Schemes:          []string{"http"},
	Title:            "eventcal API",
	Description:      "Recurring calendar events: expansion engine, repeat groups and iCalendar exchange",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
