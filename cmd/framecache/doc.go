// Command framecache runs the frame cache daemon and talks to it over the
// control socket.
//
// "framecache run" hosts the daemon in the foreground, "framecache start"
// launches it detached. Every other command is a thin IPC client: playback
// control (seek, step, select, play, pause), playlist edits (remove), on-demand
// decodes (load), runtime settings, plan previews, the caching-rate history
// and the daemon log (logs). Most read commands accept --json for
// machine-readable output.
package main
