// Package api provides the REST client for bounded historical queries.
//
// Endpoints:
//   - /book/page: paginated checkpoint+delta order-book history
//   - /trades, /candles, /funding, /open-interest, /liquidations
//   - /instruments: instrument universe
//
// BookProvider adapts the client into a page source for history.Walker.
package api
