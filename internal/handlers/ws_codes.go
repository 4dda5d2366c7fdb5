// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the room and queue handlers. These
// give clients a more specific reason for closure than the standard codes.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Session token was invalid or expired.
	InvalidRoomCodeError  = 3002 // Room code in the WS URL is malformed.
	RoomUnavailableError  = 3003 // Room does not exist, host never arrived, or the guest seat is taken.
	MatchFoundClosure     = 4000 // Queue connection served its purpose; a match was delivered.
)
