package esi

import "fmt"

// Endpoint builders for the polled resources. The upstream exposes the
// structures list under /corporations/ and the mining resources under the
// singular /corporation/ prefix.

func (c *Client) StructuresURL(corporationID int64) string {
	return fmt.Sprintf("%s/corporations/%d/structures/", c.baseURL, corporationID)
}

func (c *Client) ExtractionsURL(corporationID int64) string {
	return fmt.Sprintf("%s/corporation/%d/mining/extractions/", c.baseURL, corporationID)
}

func (c *Client) ObserversURL(corporationID int64) string {
	return fmt.Sprintf("%s/corporation/%d/mining/observers/", c.baseURL, corporationID)
}

func (c *Client) ObserverRecordsURL(corporationID, observerID int64) string {
	return fmt.Sprintf("%s/corporation/%d/mining/observers/%d/", c.baseURL, corporationID, observerID)
}

func (c *Client) CorporationURL(corporationID int64) string {
	return fmt.Sprintf("%s/corporations/%d/", c.baseURL, corporationID)
}

func (c *Client) CharacterURL(characterID int64) string {
	return fmt.Sprintf("%s/characters/%d/", c.baseURL, characterID)
}

func (c *Client) SystemURL(systemID int64) string {
	return fmt.Sprintf("%s/universe/systems/%d/", c.baseURL, systemID)
}

func (c *Client) MoonURL(moonID int64) string {
	return fmt.Sprintf("%s/universe/moons/%d/", c.baseURL, moonID)
}

func (c *Client) TypeURL(typeID int64) string {
	return fmt.Sprintf("%s/universe/types/%d/", c.baseURL, typeID)
}
