package common

// Version of the client, reported in the user agent and by the CLI
const Version = "1.0.0"
