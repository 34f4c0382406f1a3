package logengine

import "errors"

// ErrNotValidLog reports a log file that could not be replayed because a
// record in the middle of the file failed to decode. Unlike a clean
// end-of-file, this is fatal: the file's tail is unreadable and the engine
// refuses to open it rather than silently losing data.
var ErrNotValidLog = errors.New("logengine: not a valid log")
