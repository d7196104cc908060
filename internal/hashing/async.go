package hashing

// Result carries the outcome of an asynchronous hash computation.
type Result struct {
	Hash string
	Err  error
}

// HashFileAsync hashes path on a background goroutine so request handlers
// can select on the result alongside a context.
func HashFileAsync(path string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		hash, err := HashFile(path)
		ch <- Result{Hash: hash, Err: err}
	}()
	return ch
}
