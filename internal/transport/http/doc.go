// Package http exposes the license agent over HTTP: license status,
// on-demand revalidation and health. Handlers stay thin; validation lives
// in package license and error rendering in package errors.
//
// Routes, as mounted by package app:
//
//	GET  /api/license/status      last validation result and cache stats
//	POST /api/license/revalidate  run a validation for the calling host
//	GET  /api/health              cache and validation health
//	GET  /api/health/live         liveness
//	GET  /api/version             build information
package http
