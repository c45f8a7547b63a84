/*
Package runner implements the interactive loop that feeds user messages to a
tally Assistant and presents its streamed answers.

The runner keeps the text history between turns (or the conversation ID when
the assistant persists conversations), handles the slash commands, and maps
Ctrl+C to cancelling the running turn.

# Key Components

  - Runner: The loop itself, configured with functional options.
  - IOHandler: Decouples how messages are read and answers are presented.
  - TextHandler: Interactive terminal usage, optionally rendering markdown.
  - JSONHandler: JSON-Lines in and out, for scripting and pipes.

# Usage

	r := runner.NewRunner(
		runner.WithIdentity(domain.Identity{UserID: "user-1"}),
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)

	if err := r.Run(ctx, assistant); err != nil {
		log.Fatal(err)
	}
*/
package runner
