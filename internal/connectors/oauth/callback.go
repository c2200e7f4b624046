package oauth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"
)

const callbackPath = "/callback"

type callbackResult struct {
	code string
	err  error
}

// Callback is a loopback HTTP listener that accepts a single
// authorization redirect.
type Callback struct {
	state  string
	ln     net.Listener
	srv    *http.Server
	result chan callbackResult
}

// ListenCallback binds 127.0.0.1:port (0 picks a free port) and serves
// the redirect endpoint until Close.
func ListenCallback(port int, state string) (*Callback, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}
	c := &Callback{state: state, ln: ln, result: make(chan callbackResult, 1)}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, c.serve)
	c.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := c.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.deliver(callbackResult{err: err})
		}
	}()
	return c, nil
}

// Port is the bound port.
func (c *Callback) Port() int {
	return c.ln.Addr().(*net.TCPAddr).Port
}

// RedirectURL is the URL registered with the provider. Providers match
// "localhost" for loopback clients, so that is used over 127.0.0.1.
func (c *Callback) RedirectURL() string {
	return fmt.Sprintf("http://localhost:%d%s", c.Port(), callbackPath)
}

// Wait returns the authorization code from the first redirect.
func (c *Callback) Wait(ctx context.Context) (string, error) {
	select {
	case r := <-c.result:
		return r.code, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for authorization callback: %w", ctx.Err())
	}
}

// Close stops the listener.
func (c *Callback) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.srv.Shutdown(ctx)
}

// deliver keeps only the first outcome.
func (c *Callback) deliver(r callbackResult) {
	select {
	case c.result <- r:
	default:
	}
}

func (c *Callback) serve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var res callbackResult
	switch {
	case q.Get("error") != "":
		res.err = fmt.Errorf("authorization denied: %s %s", q.Get("error"), q.Get("error_description"))
	case q.Get("state") != c.state:
		res.err = errors.New("authorization state mismatch")
	case q.Get("code") == "":
		res.err = errors.New("no authorization code received")
	default:
		res.code = q.Get("code")
	}
	c.deliver(res)

	title, body := "Authorization successful", "You can close this window and return to cloudpoll."
	if res.err != nil {
		title, body = "Authorization failed", res.err.Error()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html><head><title>cloudpoll</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh">
<h1>%s</h1><p>%s</p>
</body></html>`, html.EscapeString(title), html.EscapeString(body))
}

// OpenBrowser opens url with the platform's URL handler.
func OpenBrowser(url string) error {
	var name string
	var args []string
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "linux", "freebsd", "openbsd":
		name = "xdg-open"
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler"}
	default:
		return fmt.Errorf("no browser launcher for %s", runtime.GOOS)
	}
	return exec.Command(name, append(args, url)...).Start()
}
