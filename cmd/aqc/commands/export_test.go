package commands

// SetArgs sets the arguments the root command will parse on Run.
func (a *App) SetArgs(args ...string) {
	a.cmd.SetArgs(args)
}
