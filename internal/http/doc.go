// Package http exposes the registry backend over HTTP.
//
// Every route except GET /healthz requires the deployment key in the
// `apikey` header. Routes under /rest and /realtime also require a bearer
// session token in the Authorization header.
//
//   - POST /auth/signup: {"email","password","redirect_to"} creates an account.
//     201 {"user", "session"?}; the session is present when accounts are
//     confirmed automatically. 422 with error_code user_already_exists for a
//     registered email.
//   - POST /auth/token: {"email","password"} issues a session
//     {"access_token","token_type","expires_at","user"}. 400 with error_code
//     invalid_credentials on a mismatch.
//   - GET /auth/user: the user owning the bearer session.
//   - POST /auth/logout: revokes the bearer session, 204.
//   - GET, POST /rest/{kind}/years: lists years newest first, or provisions a
//     year {"ano","quantidade"} together with its numbered slots.
//   - GET /rest/{kind}/years/{id}/slots?from=&to=: slots ordered by numero,
//     inclusive zero based row range, at most 1000 rows per request.
//   - PATCH /rest/{kind}/slots/{id}: {"status","descricao","marcado_em","usuario"}.
//   - GET /rest/{kind}/years/{id}/export: XLSX workbook of the year.
//   - GET /realtime/{kind}?ano_id=: text/event-stream of slot changes. The
//     first event is `ready`; later events are named INSERT, UPDATE or DELETE
//     and carry the change as JSON.
//
// {kind} is one of oficios, capas or oficios-circulares. The sign up and
// token routes are throttled per client IP. Errors are JSON
// {"error_code","message","errors"?} with Portuguese messages.
package http
