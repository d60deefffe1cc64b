// Package status defines the typed view of a check-in status delivered by
// the upstream check-in service.
//
// The raw JSON of a delivery is persisted unchanged; Status is decoded from
// the effective document (raw status with the user's patch applied) whenever
// code needs to reason about stations, times or train identity. Unknown keys
// survive in the raw document and are never dropped by decoding.
//
// A journey id identifies one trip of one user:
//
//	JourneyID = decimal(fromStation.scheduledTime) + train.id
//
// Trips created by hand carry a train id starting with ManualPrefix; the
// continuity engine skips the distance rule for them.
package status
