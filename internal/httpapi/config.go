package httpapi

// defaultMaxBodyBytes fits an RGB 1024x1024 f32 image in JSON with room to spare.
const defaultMaxBodyBytes int64 = 64 << 20

// maxBodyBytes controls the maximum allowed request body size for /v1/rpc.
var maxBodyBytes = defaultMaxBodyBytes

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
		return
	}
	maxBodyBytes = n
}

// callTimeout bounds how long an RPC may wait for its result, in seconds.
// Zero means no additional timeout beyond server/connection timeouts.
var callTimeout = int64(0)

// SetCallTimeoutSeconds sets the RPC timeout in seconds (0 disables).
func SetCallTimeoutSeconds(sec int64) {
	if sec < 0 {
		sec = 0
	}
	callTimeout = sec
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
