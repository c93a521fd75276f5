package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "meeting-minutes-service/internal/api/grpc"
	"meeting-minutes-service/internal/models"
)

func main() {
	segmentsFile := flag.String("segments", "testdata/segments.jsonl", "JSONL file with one segment per line")
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	sessionKey := flag.String("session", "replay-"+time.Now().Format("150405"), "Session key")
	speed := flag.Float64("speed", 1, "Replay speed multiplier; 0 sends without pacing")
	flag.Parse()

	segments, err := readSegments(*segmentsFile)
	if err != nil {
		log.Fatalf("Failed to read segments: %v", err)
	}
	log.Printf("Loaded %d segments from %s", len(segments), *segmentsFile)

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	client := grpcapi.NewClient(conn)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// The first push creates the session, so the watch starts after it.
	if len(segments) == 0 {
		return
	}
	if _, err := client.PushSegment(ctx, *sessionKey, segments[0]); err != nil {
		log.Fatalf("Failed to push segment: %v", err)
	}

	watch, err := client.WatchTranscript(ctx, *sessionKey)
	if err != nil {
		log.Fatalf("Failed to watch transcript: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			u, err := watch.Recv()
			if err != nil {
				if !errors.Is(ctx.Err(), context.Canceled) {
					log.Printf("Watch ended: %v", err)
				}
				return
			}
			if u.Kind == "finalized" || u.Kind == "snapshot" {
				fmt.Printf("--- %s ---\n%s\n", u.Kind, u.Transcript)
			}
		}
	}()

	prev := segments[0].StartTime
	for _, seg := range segments[1:] {
		if *speed > 0 && seg.StartTime > prev {
			wait := time.Duration((seg.StartTime - prev) / *speed * float64(time.Second))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			prev = seg.StartTime
		}
		resp, err := client.PushSegment(ctx, *sessionKey, seg)
		if err != nil {
			log.Fatalf("Failed to push segment %s: %v", seg.ResultID, err)
		}
		log.Printf("Pushed %s (%d segments merged)", resp.SegmentID, resp.Segments)
	}

	// Give the watch stream a moment to drain before exiting.
	time.Sleep(500 * time.Millisecond)
	stop()
	<-done
}

func readSegments(path string) ([]models.Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var segments []models.Segment
	r := bufio.NewReader(f)
	line := 0
	for {
		raw, err := r.ReadBytes('\n')
		if len(raw) > 0 {
			line++
			var seg models.Segment
			if jerr := json.Unmarshal(raw, &seg); jerr != nil {
				if len(bytes.TrimSpace(raw)) == 0 {
					continue
				}
				return nil, fmt.Errorf("line %d: %w", line, jerr)
			}
			segments = append(segments, seg)
		}
		if errors.Is(err, io.EOF) {
			return segments, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
