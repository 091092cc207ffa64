package interfaces

import "io"

// Transport is the non-blocking connection an authenticator drives.
//
// Read and Write never block. A call that cannot make progress returns
// (0, nil); io.EOF from Read means the peer closed the connection.
type Transport interface {
	io.Reader
	io.Writer

	// AddWriteInterest asks the owning event loop to report writability
	AddWriteInterest()

	// RemoveWriteInterest stops writability notifications
	RemoveWriteInterest()
}
