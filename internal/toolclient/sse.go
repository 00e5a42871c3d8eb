package toolclient

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// consumeSSE reads a server-sent-events body whose event names are drawn
// from {progress, result, error}. Each progress event is handed to
// progress synchronously, in arrival order; result returns its data;
// error fails with RemoteError; a body that ends without either fails
// with TruncatedStream.
//
// Event data is parsed with the standard JSON decoder, never eval or any
// other non-JSON interpreter.
func consumeSSE(ctx context.Context, body io.Reader, progress ProgressHandler) (json.RawMessage, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, &ToolError{Kind: DeadlineExceeded, Details: err.Error()}
		}

		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			dataText := strings.TrimPrefix(line, "data: ")

			var data json.RawMessage
			if err := json.Unmarshal([]byte(dataText), &data); err != nil {
				// Malformed event data is dropped, matching the bus's
				// policy of logging and continuing rather than aborting
				// the whole stream over one bad frame.
				continue
			}

			switch eventName {
			case "progress":
				if progress != nil {
					progress(data)
				}
			case "result":
				return data, nil
			case "error":
				return nil, &ToolError{Kind: RemoteError, Details: string(data)}
			}
		case line == "":
			eventName = ""
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, &ToolError{Kind: TruncatedStream, Details: err.Error()}
	}
	return nil, &ToolError{Kind: TruncatedStream, Details: "stream closed without result or error"}
}
