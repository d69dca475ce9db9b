// Package errors provides structured, coded errors for chatsync.
//
// Every error the hydration sequence or the CLI reports carries a stable
// code (e.g. "E101") that maps to a short message and an explanation:
//
//	err := errors.New(errors.CodeChatNotFound).
//	    WithSuggestion("Open the chat list and pick an existing chat")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E101: Chat not found
//	//
//	//   The chat named in the address has no history metadata. The
//	//   address parameter was cleared.
//	//
//	//   Hint: Open the chat list and pick an existing chat
//
// Codes are compared with errors.Is: errors.Is(err, errors.New("E101")).
package errors
