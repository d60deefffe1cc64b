// Package enrich resolves the headsign and rolling-stock composition of
// stored trips from external timetable and composition providers.
//
// Enrichment runs off the webhook path. The live feed enqueues a Job after
// storing a trip; worker goroutines started by Pipeline.Run pick jobs up
// and serialize per trip, so two deliveries for the same trip never enrich
// concurrently while different trips proceed in parallel.
//
// Headsign: the timetable lookup is routed by the status backend (HAFAS,
// DBRIS or MOTIS). A successful lookup stores the provider's trip data and
// headsign; a failed one stores {"failedhafas": true} and the "?" headsign.
// Neither is retried unless the job is forced.
//
// Composition: strategies are tried in a fixed order and the first success
// wins. A strategy that misses or fails leaves failedcomposition-<name> in
// the trip's status patch and is never asked again for that trip. A status
// that already carries a composition, from a provider or from the user, is
// left alone.
package enrich
