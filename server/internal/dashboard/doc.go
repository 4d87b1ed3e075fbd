// Package dashboard owns the dashboard's visual state.
//
// A Controller is constructed once, Initialize creates the pipeline line chart
// and the security donut chart, and every Refresh retrieves a snapshot (or
// falls back to sample data) and Renders it: four metric cards, both charts
// updated in place, and six application tiles. View returns a copy of that
// state for the API, the HTML page and the WebSocket hub.
//
// Refreshes may overlap. Each Render replaces the whole visual state under the
// controller's lock, so the last one to finish wins.
package dashboard
