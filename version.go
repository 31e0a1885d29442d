package ontology

// Version is the current release of the engine and its CLI
const Version = "0.4.0"
