package httpapi

import (
	"net/http"

	"github.com/scriptducks/hashes-gui/internal/buildinfo"
	"github.com/scriptducks/hashes-gui/internal/domain"
	"github.com/scriptducks/hashes-gui/internal/httpjson"
)

func ref(name string) map[string]any {
	return map[string]any{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema map[string]any) map[string]any {
	return map[string]any{"application/json": map[string]any{"schema": schema}}
}

func okResponse(schema map[string]any) map[string]any {
	return map[string]any{"description": "OK", "content": jsonContent(schema)}
}

var errorResponse = map[string]any{"description": "Error", "content": jsonContent(ref("Error"))}

func operation(summary string, ok map[string]any, errorStatuses ...string) map[string]any {
	responses := map[string]any{"200": ok}
	for _, s := range errorStatuses {
		responses[s] = errorResponse
	}
	return map[string]any{"summary": summary, "responses": responses}
}

func query(name, typ, description string) map[string]any {
	return map[string]any{"name": name, "in": "query", "required": false, "description": description, "schema": map[string]any{"type": typ}}
}

func withParams(op map[string]any, params ...map[string]any) map[string]any {
	list := make([]any, 0, len(params))
	for _, p := range params {
		list = append(list, p)
	}
	op["parameters"] = list
	return op
}

func withBody(op map[string]any, schema map[string]any) map[string]any {
	op["requestBody"] = map[string]any{"required": true, "content": jsonContent(schema)}
	return op
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	object := map[string]any{"type": "object", "additionalProperties": true}
	str := map[string]any{"type": "string"}

	preferencesObject := map[string]any{
		"type":        "object",
		"description": "Flat preferences record. api_key is the hashes.com key, every other key is kept as given.",
		"properties": map[string]any{
			domain.APIKeyField:       str,
			domain.KeyJobsSortColumn: str,
			domain.KeyJobsSortDesc:   map[string]any{"type": "boolean"},
			domain.KeyJobsCurrency:   str,
			domain.KeyJobsAlgorithm:  str,
			domain.KeyJobsMinLeft:    map[string]any{"type": "integer"},
		},
		"additionalProperties": true,
	}

	jobFilters := []map[string]any{
		query("currency", "string", "Currency, \"All\" disables the filter."),
		query("algorithm", "string", "\"<id> - <name>\", an id prefix or a name substring."),
		query("minLeft", "integer", "Minimum left hashes."),
		query("sort", "string", "id, created, algorithm, total, found, left, currency, price or hints."),
		query("desc", "boolean", "Descending order."),
	}

	doc := map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "hashes-gui API",
			"version": buildinfo.Current().Version,
		},
		"paths": map[string]any{
			"/api/v1/health":       map[string]any{"get": operation("Liveness", okResponse(object))},
			"/api/v1/version":      map[string]any{"get": operation("Build information", okResponse(object))},
			"/api/v1/openapi.json": map[string]any{"get": operation("This document", okResponse(object))},
			"/api/v1/events": map[string]any{"get": withParams(
				map[string]any{"summary": "Server-sent task events", "responses": map[string]any{"200": map[string]any{"description": "text/event-stream"}}},
				query("topics", "string", "Comma separated topic prefixes."),
			)},
			"/api/v1/preferences": map[string]any{
				"get":   operation("Current preferences", okResponse(ref("Preferences")), "500"),
				"put":   withBody(operation("Replace and save preferences", okResponse(ref("Preferences")), "400", "500"), ref("Preferences")),
				"patch": withBody(operation("Merge and save preferences, null removes a key", okResponse(ref("Preferences")), "400", "500"), object),
			},
			"/api/v1/preferences/api-key": map[string]any{
				"put": withBody(operation("Save the API key", okResponse(ref("Preferences")), "400", "500"),
					map[string]any{"type": "object", "properties": map[string]any{"apiKey": str}}),
			},
			"/api/v1/hashes/algorithms": map[string]any{"get": withParams(
				operation("Algorithm catalogue", okResponse(object), "502"),
				query("refresh", "boolean", "Fetch from hashes.com first."),
			)},
			"/api/v1/hashes/jobs":     map[string]any{"get": withParams(operation("Open escrow jobs", okResponse(object), "400", "502"), jobFilters...)},
			"/api/v1/hashes/jobs.csv": map[string]any{"get": withParams(operation("Open escrow jobs as CSV", map[string]any{"description": "text/csv"}, "400", "502"), jobFilters...)},
			"/api/v1/hashes/balance":  map[string]any{"get": operation("Balance with USD values", okResponse(object), "400", "502")},
			"/api/v1/hashes/identify": map[string]any{"get": withParams(
				operation("Identify a hash", okResponse(object), "400", "502"),
				query("hash", "string", "Hash to identify."),
				query("extended", "boolean", "Include extended algorithms."),
			)},
			"/api/v1/hashes/lookup": map[string]any{"post": withParams(
				withBody(operation("Look up up to 250 hashes", okResponse(object), "400", "502"),
					map[string]any{"type": "object", "properties": map[string]any{"hashes": map[string]any{"type": "array", "items": str}}}),
				query("format", "string", "\"text\" for hash[:salt]:plain lines."),
				query("algorithm", "boolean", "Append the algorithm in text format."),
			)},
			"/api/v1/tasks": map[string]any{
				"get":  withParams(operation("Recent tasks", okResponse(map[string]any{"type": "array", "items": ref("Task")})), query("limit", "integer", "At most 500.")),
				"post": withBody(operation("Queue a task", okResponse(ref("Task")), "400"), ref("CreateTaskRequest")),
			},
			"/api/v1/tasks/{id}":        map[string]any{"get": operation("One task", okResponse(ref("Task")), "404")},
			"/api/v1/tasks/{id}/cancel": map[string]any{"post": operation("Cancel a queued or running task", okResponse(ref("Task")), "404")},
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"Error": map[string]any{
					"type":       "object",
					"properties": map[string]any{"error": str, "code": str},
					"required":   []any{"error"},
				},
				"Preferences": preferencesObject,
				"CreateTaskRequest": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"type": map[string]any{"type": "string", "enum": []any{domain.TaskDownloadLeftLists, domain.TaskUpdateAlgorithms}},
						"params": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"jobIds":      map[string]any{"type": "array", "items": str},
								"destination": str,
							},
						},
					},
					"required": []any{"type"},
				},
				"Task": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":        str,
						"type":      str,
						"state":     map[string]any{"type": "string", "enum": []any{"queued", "running", "completed", "failed", "canceled"}},
						"progress":  map[string]any{"type": "number", "format": "double"},
						"createdAt": map[string]any{"type": "string", "format": "date-time"},
						"updatedAt": map[string]any{"type": "string", "format": "date-time"},
						"params":    object,
						"result":    object,
						"errorCode": str,
						"error":     str,
					},
					"required": []any{"id", "type", "state", "progress", "createdAt", "updatedAt"},
				},
			},
		},
	}

	httpjson.Write(w, http.StatusOK, doc)
}
