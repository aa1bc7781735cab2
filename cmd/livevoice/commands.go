package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/enesunal-m/livevoice"
)

func newTranscribeCmd(a *app) *cobra.Command {
	var (
		in       string
		chunkMS  int
		realtime bool
	)
	cmd := &cobra.Command{
		Use:   "transcribe --in input.wav",
		Short: "Send a WAV file and print the text the service returns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := wavSource(cmd.Context(), in, chunkMS, realtime)
			if err != nil {
				return err
			}
			stream, err := a.streamer.Transcribe(cmd.Context(), src)
			if err != nil {
				return err
			}
			return render(cmd.Context(), stream, cmd.OutOrStdout(), nil)
		},
	}
	addInputFlags(cmd, &in, &chunkMS, &realtime)
	return cmd
}

func newSpeakCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "speak TEXT...",
		Short: "Send a text turn and save the spoken answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stream, err := a.streamer.Speak(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			asm := livevoice.NewAudioAssembler()
			if err := render(cmd.Context(), stream, cmd.OutOrStdout(), asm); err != nil {
				return err
			}
			return saveWAV(out, asm.Bytes())
		},
	}
	cmd.Flags().StringVar(&out, "out", "answer.wav", "where to write the audio answer")
	return cmd
}

func newConverseCmd(a *app) *cobra.Command {
	var (
		in, out  string
		chunkMS  int
		realtime bool
	)
	cmd := &cobra.Command{
		Use:   "converse --in input.wav",
		Short: "Stream a WAV file in real time and collect every turn the service produces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := wavSource(cmd.Context(), in, chunkMS, realtime)
			if err != nil {
				return err
			}
			stream, err := a.streamer.Converse(cmd.Context(), src)
			if err != nil {
				return err
			}
			asm := livevoice.NewAudioAssembler()
			if err := render(cmd.Context(), stream, cmd.OutOrStdout(), asm); err != nil {
				return err
			}
			return saveWAV(out, asm.Bytes())
		},
	}
	addInputFlags(cmd, &in, &chunkMS, &realtime)
	cmd.Flags().StringVar(&out, "out", "conversation.wav", "where to write the audio received")
	return cmd
}

func addInputFlags(cmd *cobra.Command, in *string, chunkMS *int, realtime *bool) {
	cmd.Flags().StringVar(in, "in", "", "16-bit PCM WAV file to stream")
	cmd.Flags().IntVar(chunkMS, "chunk-ms", livevoice.DefaultChunkMS, "audio per frame in milliseconds")
	cmd.Flags().BoolVar(realtime, "realtime", true, "pace frames at the audio's own rate")
	_ = cmd.MarkFlagRequired("in")
}

// wavSource reads path and returns a channel of chunks ready to stream.
func wavSource(ctx context.Context, path string, chunkMS int, realtime bool) (<-chan livevoice.AudioChunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pcm, rate, err := livevoice.ReadWAV(f)
	if err != nil {
		return nil, err
	}
	mime := fmt.Sprintf("audio/pcm;rate=%d", rate)
	chunks := livevoice.ChunkPCM(pcm, livevoice.PCM16BytesFor(chunkMS, rate), mime)
	var interval time.Duration
	if realtime {
		interval = time.Duration(chunkMS) * time.Millisecond
	}
	return livevoice.ChunkSource(ctx, chunks, interval), nil
}

// render prints text as it arrives and feeds audio to asm when set.
func render(ctx context.Context, stream *livevoice.Stream, w io.Writer, asm *livevoice.AudioAssembler) error {
	return livevoice.Dispatch(ctx, stream, livevoice.Handlers{
		OnText: func(text string) { fmt.Fprint(w, text) },
		OnAudio: func(audio []byte, mime string) {
			if asm != nil {
				asm.Add(livevoice.Event{Kind: livevoice.EventAudioFragment, Audio: audio, MimeType: mime})
			}
		},
		OnTurnComplete: func() {
			fmt.Fprintln(w)
			if asm != nil {
				asm.Add(livevoice.Event{Kind: livevoice.EventTurnComplete})
			}
		},
		OnError: func(kind livevoice.ErrorKind, err error) {
			fmt.Fprintf(os.Stderr, "error (%s): %v\n", kind, err)
		},
	})
}

func saveWAV(path string, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := livevoice.WriteWAV(f, pcm, livevoice.DefaultOutputSampleRate); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	return nil
}
