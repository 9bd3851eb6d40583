package race

// Version is the detector's release version, bumped on every
// externally-visible behavior change.
const Version = "0.1.0"
