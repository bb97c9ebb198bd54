// Package browser records the session history of a real Chromium page.
//
// A Manager drives Chromium through Playwright. Each Session
// subscribes to its page's frame events (attached, navigated, detached)
// and hands them to a Recorder, which mirrors the page's frames in a
// livetree.Tree and turns each navigation into a commit on a
// history.Controller.
//
// # Sequence numbers
//
// Chromium does not expose item and document sequence numbers, so the
// Recorder issues its own. Navigations started through the Session
// (Navigate, GoBack, GoForward, Reload) are announced to the Recorder
// first, which lets history loads reuse the numbers stored in the target
// entry. Navigations started by the page itself are told apart by URL
// only:
//
//   - a URL differing from the frame's current one only in its fragment
//     stays in the same document
//   - the same URL again reloads the same item
//   - anything else is a new document
//
// pushState and replaceState to a different path therefore look like new
// documents.
package browser
