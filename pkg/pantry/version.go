package pantry

// Version is the pantry kit version.
const Version = "0.3.0"
