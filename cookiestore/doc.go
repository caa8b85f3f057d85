// Package cookiestore provides an http.CookieJar that survives process
// restarts.
//
// The jar is loaded from its file when opened and the file is rewritten in
// full, atomically, after every change. A missing or unreadable file yields
// an empty jar instead of an error. Writers in one process are serialized;
// separate processes sharing a file are not coordinated.
package cookiestore
