// Package backend talks to the case-management backend's task API.
//
// Client.Status polls GET /tasks/status/{id} and decodes the Celery-style
// payload, accepting an info field that is either an object or a bare string.
// Client.Submit posts work to a category endpoint and extracts the returned
// task id(s). Every request carries the bearer token, a User-Agent, and an
// X-Request-ID so backend logs can be correlated with casetrack logs.
package backend
