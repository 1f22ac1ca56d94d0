package sync

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dhowell/mailtriage/internal/classify"
	"github.com/dhowell/mailtriage/internal/config"
	"github.com/dhowell/mailtriage/internal/db"
)

const (
	bootstrapInboxMax = 1000
	bootstrapSentMax  = 800
	toneContacts      = 10
	toneSampleMax     = 15
	toneSampleBodyCap = 1500
)

// Bootstrap builds the account's sender statistics and tone profiles
// from mailbox history, then marks the first run completed. It runs
// once per account and performs no mailbox mutations.
func (o *Orchestrator) Bootstrap(ctx context.Context, eff config.Effective) error {
	o.printf("  %s — bootstrap (last %dd of inbox, %dd of sent mail)\n",
		eff.Email, eff.Triage.LookbackDaysInitial, eff.Triage.ToneProfileLookbackDays)

	if err := o.collectSenderStats(ctx, eff); err != nil {
		return err
	}
	if err := o.buildToneProfiles(ctx, eff); err != nil {
		return err
	}

	st := o.States.Load(eff.Email)
	st.FirstRunCompleted = true
	if err := o.States.Save(eff.Email, st); err != nil {
		return fmt.Errorf("save bootstrap state: %w", err)
	}
	o.printf("  ✓ bootstrap complete\n")
	return nil
}

func (o *Orchestrator) collectSenderStats(ctx context.Context, eff config.Effective) error {
	msgs, err := o.Mailbox.ListInboxSince(ctx, eff.Triage.LookbackDaysInitial, bootstrapInboxMax)
	if err != nil {
		return fmt.Errorf("fetch inbox history: %w", err)
	}

	domain := accountDomain(eff.Email)
	type agg struct {
		name   string
		count  int
		latest string
	}
	senders := make(map[string]*agg)
	for i := range msgs {
		addr := msgs[i].FromAddress()
		if addr == "" {
			continue
		}
		a := senders[addr]
		if a == nil {
			a = &agg{}
			senders[addr] = a
		}
		a.count++
		if msgs[i].FromName() != "" {
			a.name = msgs[i].FromName()
		}
		if msgs[i].ReceivedDateTime > a.latest {
			a.latest = msgs[i].ReceivedDateTime
		}
	}

	for addr, a := range senders {
		err := o.DB.UpsertSenderStat(db.SenderStat{
			Account:        eff.Email,
			Address:        addr,
			DisplayName:    a.name,
			MessageCount:   a.count,
			Internal:       domain != "" && strings.HasSuffix(addr, "@"+domain),
			LatestReceived: a.latest,
		})
		if err != nil {
			return fmt.Errorf("store sender stats for %s: %w", addr, err)
		}
	}
	o.printf("    %d messages from %d senders\n", len(msgs), len(senders))
	return nil
}

// buildToneProfiles samples the user's sent mail to the most frequent
// recipients and asks the classifier to describe the writing style.
// Individual contacts failing only costs their profile; the account
// default is derived from everything sent.
func (o *Orchestrator) buildToneProfiles(ctx context.Context, eff config.Effective) error {
	sent, err := o.Mailbox.ListSentSince(ctx, eff.Triage.ToneProfileLookbackDays, bootstrapSentMax)
	if err != nil {
		return fmt.Errorf("fetch sent history: %w", err)
	}
	if len(sent) == 0 {
		o.printf("    no sent mail, skipping tone profiles\n")
		return nil
	}

	samplesByContact := make(map[string][]string)
	var allSamples []string
	contactOrder := []string{}
	for i := range sent {
		body := truncate(messageBody(&sent[i]), toneSampleBodyCap)
		if body == "" {
			continue
		}
		if len(allSamples) < toneSampleMax {
			allSamples = append(allSamples, body)
		}
		for _, rcpt := range sent[i].ToRecipients {
			addr := strings.ToLower(rcpt.EmailAddress.Address)
			if addr == "" || addr == eff.Email {
				continue
			}
			if _, seen := samplesByContact[addr]; !seen {
				contactOrder = append(contactOrder, addr)
			}
			if len(samplesByContact[addr]) < toneSampleMax {
				samplesByContact[addr] = append(samplesByContact[addr], body)
			}
		}
	}

	// Most-written-to contacts first.
	sortByVolume(contactOrder, samplesByContact)
	if len(contactOrder) > toneContacts {
		contactOrder = contactOrder[:toneContacts]
	}

	profiled := 0
	for _, contact := range contactOrder {
		res, err := o.Classifier.ToneProfile(ctx, classify.ToneRequest{
			Account: eff.Email,
			Contact: contact,
			Samples: samplesByContact[contact],
		})
		if err != nil {
			o.warnf("%s: tone profile for %s: %v", eff.Email, contact, err)
			continue
		}
		if err := o.saveToneProfile(eff.Email, contact, res); err != nil {
			return err
		}
		profiled++
	}

	if len(allSamples) > 0 {
		res, err := o.Classifier.ToneProfile(ctx, classify.ToneRequest{
			Account: eff.Email,
			Contact: db.DefaultContact,
			Samples: allSamples,
		})
		if err != nil {
			o.warnf("%s: default tone profile: %v", eff.Email, err)
		} else if err := o.saveToneProfile(eff.Email, db.DefaultContact, res); err != nil {
			return err
		}
	}
	o.printf("    %d tone profiles from %d sent messages\n", profiled, len(sent))
	return nil
}

func (o *Orchestrator) saveToneProfile(account, contact string, res classify.ToneResult) error {
	err := o.DB.UpsertToneProfile(db.ToneProfile{
		Account:         account,
		Contact:         contact,
		ToneSummary:     res.ToneSummary,
		StyleGuidelines: res.StyleGuidelines,
	})
	if err != nil {
		return fmt.Errorf("store tone profile for %s: %w", contact, err)
	}
	return nil
}

func sortByVolume(contacts []string, samples map[string][]string) {
	sort.SliceStable(contacts, func(i, j int) bool {
		return len(samples[contacts[i]]) > len(samples[contacts[j]])
	})
}

func accountDomain(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}
