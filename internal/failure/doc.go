// Package failure turns a rejected license check into its visible effect.
//
// The validator only produces a *errors.Failure. Policy maps it according
// to the configured invalid behavior, in one of two contexts:
//
//   - Handle is the process context used by bootstrap: "log" writes an
//     error line, "silent" does nothing, "modal" and "redirect" print their
//     output and terminate through the exit hook.
//   - Respond is the HTTP context used by middleware: "redirect" answers
//     302, "modal" answers 403 with an HTML page (or RFC 7807 JSON for JSON
//     clients), "log" and "silent" let the request continue.
package failure
