package tally

// Version is the release of the tally module.
const Version = "0.1.0"
